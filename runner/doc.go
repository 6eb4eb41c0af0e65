// Package runner provides common types shared by program runners,
// including Result, Limit, Size and Status.
//
// Status
//
// Status defines how the program terminated
//  Exited (voluntary exit, any exit status)
//  Signalled (killed by a signal not sent for a limit)
//  Resource Limit Exceeded (Time / Memory)
//  Program Runner Error
//
// Size
//
// Size defines size in bytes, underlying type is uint64 so it
// is effective to store up to EiB of size
//
// Limit
//
// Limit defines wall clock, CPU time & memory restriction on program runner
//
// Result
//
// Result defines program running result including
// Status, ExitStatus, Signal, Time, CPUTime, Memory,
// SetupTime and RunningTime (in real clock)
//
// Runner
//
// General interface to run a program, including a context
// for cancellation
package runner
