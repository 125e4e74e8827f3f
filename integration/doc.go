// Package integration describes the project management tools that receive
// tickets for critical vulnerabilities and the notifiers that deliver them.
//
// A Target is read-only from the manager's point of view. Targets come from a
// Source: Static for a configured list, EtcdSource for targets kept under an
// etcd prefix. Only eligible targets (connected, with a project id) receive
// notifications, in the order the source returns them.
package integration
