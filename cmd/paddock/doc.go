// Command paddock is the CLI for the paddock episode scheduler. It runs
// the daemon, manages the race calendar and running-gag library, and
// inspects scheduled jobs and produced episodes, talking to a running
// daemon over its HTTP API or to the database directly when none is up.
package main
