// Package river runs a command line as a child process under time and
// memory limits and reports what it used.
//
// A River is built from a command line, configured with setters and run
// exactly once:
//
//	r, err := river.New("echo Hello World!")
//	if err != nil {
//		return err
//	}
//	r.SetTimeLimit(1000)   // ms
//	r.SetMemoryLimit(65536) // KB
//	outcome, err := r.Run()
//
// Limit violations and abnormal terminations are reported by the
// RunOutcome. An error is only returned when the program never ran, in
// which case it is a *SetupError or one of the sentinel errors.
package river
