package query

// SQL renditions of the cycle-time rules, used where ordering or search
// needs them inside the database. They mirror internal/cycletime: first
// transition of any kind starts the clock, first entry into the
// completion group stops it.

func startedAtExpr() string {
	return "(SELECT MIN(ch.transitioned_at) FROM matter_cycle_time_history ch WHERE ch.matter_id = m.id)"
}

func completedAtExpr(a *args, opts Options) string {
	return "(SELECT MIN(dh.transitioned_at) FROM matter_cycle_time_history dh" +
		" JOIN status_options dso ON dso.id = dh.to_status_id" +
		" JOIN status_groups dsg ON dsg.id = dso.group_id" +
		" WHERE dh.matter_id = m.id AND dsg.name = " + a.add(opts.DoneGroup) + ")"
}

// resolutionMsExpr is the finalized resolution time in milliseconds, NULL
// until the matter has first entered the completion group.
func resolutionMsExpr(a *args, opts Options) string {
	return "(EXTRACT(EPOCH FROM (" + completedAtExpr(a, opts) + " - " + startedAtExpr() + ")) * 1000)"
}

// currentGroupExpr is the group of the matter's lowest-sequence status field.
func currentGroupExpr() string {
	return "(SELECT cg.name FROM matter_field_values cv" +
		" JOIN field_definitions cf ON cf.id = cv.field_id AND cf.deleted_at IS NULL" +
		" JOIN status_options co ON co.id = cv.status_reference_value" +
		" JOIN status_groups cg ON cg.id = co.group_id" +
		" WHERE cv.matter_id = m.id AND cf.field_type = 'status'" +
		" ORDER BY cf.sequence LIMIT 1)"
}

// slaStatusExpr renders the SLA label for the row.
func slaStatusExpr(a *args, opts Options) string {
	resolution := resolutionMsExpr(a, opts)
	return "(CASE" +
		" WHEN " + currentGroupExpr() + " IS DISTINCT FROM " + a.add(opts.DoneGroup) + " THEN 'In Progress'" +
		" WHEN " + resolution + " IS NULL THEN 'In Progress'" +
		" WHEN " + resolution + " <= " + a.add(opts.SLAThreshold.Milliseconds()) + " THEN 'Met'" +
		" ELSE 'Breached' END)"
}
