/*
Package apperr classifies errors and keeps a bounded log of the ones the
application handled.

Every failure that does not propagate to a caller (a remote write that fell
back to the offline queue, a probe that failed, a salvaged import) goes through
Handler.Handle. The handler:

  - classifies the error into a Category and Severity
  - appends it to a ring log of the last DefaultLogSize entries
  - counts it in verdant_errors_total
  - forwards it to the Reporter if its severity reaches MinSeverity and its
    category is not excluded; offline network errors are never forwarded

UserMessage maps any error to the text shown to the user, with a generic
"Something went wrong" for anything unclassified.
*/
package apperr
