// Package spawn launches job commands as the job's owner.
//
// A launch is fire-and-forget from the caller's point of view: SpawnAs
// returns as soon as the process has started, and a goroutine reaps it so no
// zombie is left behind. The exit status is only ever logged at debug level;
// nothing about completion is recorded.
//
// Two strategies exist. CredentialSpawner starts "<shell> -c <command>"
// with the owner's uid, gid and supplementary groups set directly on the
// child. SuSpawner runs the command through "su - <user>" for hosts that
// rely on a full login session.
package spawn
