// Package server exposes the permission layer over HTTP for remote UIs.
//
// # API Endpoints
//
//   - GET  /mode                  current approval mode
//   - PUT  /mode                  switch mode, body {"mode": "plan"}
//   - POST /mode/cycle            advance default, auto_edit, plan
//   - POST /command               run a slash command, body {"command": "/mode plan"}
//   - POST /check                 gate a call, waiting for the operator when asked
//   - POST /decide                evaluate a call without running it
//   - GET  /rules                 loaded rules in evaluation order (?mode= filters)
//   - GET  /confirmation          outstanding confirmations, oldest first
//   - GET  /confirmation/{id}     one outstanding confirmation
//   - POST /confirmation/{id}     answer a confirmation
//   - GET  /event                 SSE stream of bus traffic
//
// A UI typically subscribes to /event, renders each *.request event and
// answers it with POST /confirmation/{correlationID}. The body fields depend
// on the request kind:
//
//	tool.confirmation.request  {"outcome": "proceed|proceed_always|cancel", "feedback": "..."}
//	question.request           {"answers": {"Header": ["choice"]}} or {"dismissed": true}
//	plan.approval.request      {"approved": true, "mode": "auto_edit"} or {"approved": false, "feedback": "..."}
//
// Illegal mode transitions are reported with 409 and code ILLEGAL_TRANSITION;
// the mode is left unchanged.
package server
