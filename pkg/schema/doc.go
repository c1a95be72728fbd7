/*
Package schema validates untrusted input against the Verdant data model.

Input arrives from backup files, the local snapshot and remote reads. Each is
decoded strictly (unknown fields are rejected at every depth, so stale or
injected fields cannot round-trip) and then checked against the struct rules
declared on pkg/types with go-playground/validator.

Validation never panics. Validate returns a Result whose Errors list names the
offending field by its JSON path:

	res := schema.ValidateAppData(schema.Default, raw)
	if !res.Success {
		for _, e := range res.Errors {
			fmt.Println(e.Path, e.Rule, e.Message) // goals[2].month max must be at most 11
		}
	}

ValidateOrError is the form for callers with no recovery path.
ValidateGoalsArray checks each goal on its own so a single bad record does not
reject the rest; the import salvage path in pkg/datastore is built on it.

Custom rules:

	isodate     ISO-8601 date or date-time
	goalstatus  current goal statuses plus the legacy "completed"; CheckGoal,
	            the path for goals being saved, rejects the legacy value
	clocktime   HH:MM or HH:MM:SS
*/
package schema
