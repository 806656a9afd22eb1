package models

// All lists every model managed by auto-migration, in dependency order.
func All() []interface{} {
	return []interface{}{&Label{}, &Challenge{}, &Submission{}}
}
