/*
Package process contributes services listed by an external command.

The command prints either a JSON array (objects with id, text, icon, tooltip
and groups, or plain IDs) or one ID per line, where "a/b/id" places id under
groups a and b. A non-zero exit fails the enumeration with ErrExecution and
the command's stderr.

With Config.Poll set the contributor is also an event source: it reruns the
command on that interval and resets its subtree whenever the output changes.
*/
package process
