/*
Package iptrace keeps a per-host history of public IP addresses.

Usage will always start with [iptrace.New],
which returns the Tracker implementation.
New requires the host name under which records are filed.
Each call to Tracker.Track resolves the current address,
compares it with the last record in the host's log,
and appends a new record only when the two differ.

Logs are plain text files under the trace/ directory of a storage directory,
usually a git checkout shared by several hosts (see [EnsureCloned]).
Committing and pushing that checkout is left to the caller.

A [FileIndex] caches each host's last record under .iptrace/index/ in the same directory.
The cache is only valid on the machine that wrote it,
so shared checkouts should list .iptrace/ in their .gitignore.
*/
package iptrace
