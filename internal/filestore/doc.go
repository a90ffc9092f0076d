// Package filestore implements tracking.Store on a plain directory tree, the
// default `file://` backend.
//
// # Layout
//
//	<root>/
//	  .names/<escaped experiment name>   experiment id claimed with O_EXCL
//	  <experiment id>/meta.yaml
//	  <experiment id>/<run id>/meta.yaml
//	  <experiment id>/<run id>/params/<key>    one file per param, value as content
//	  <experiment id>/<run id>/metrics/<key>   "<unix ms> <value> <step>" per line
//	  <experiment id>/<run id>/tags/<key>
//
// Keys containing '/' become nested directories.
//
// # Concurrency
//
// Several processes of a sweep may share one root. Experiment names and
// parameters are claimed with O_CREATE|O_EXCL so the filesystem arbitrates
// between them; metric lines are appended with O_APPEND; meta files are
// replaced atomically with a rename. Within a process a mutex serialises
// status transitions.
package filestore
