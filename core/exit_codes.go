package core

// Process exit codes used by the batchgen CLI.
const (
	// ExitCodeSuccess means every submitted image was generated.
	ExitCodeSuccess = 0

	// ExitCodeError is a generic runtime failure.
	ExitCodeError = 1

	// ExitCodeConfig means configuration was missing or invalid.
	ExitCodeConfig = 2

	// ExitCodeAuth means the remote service rejected or could not mint a credential.
	ExitCodeAuth = 3

	// ExitCodeRowsFailed means the run finished but at least one image failed.
	ExitCodeRowsFailed = 4

	// ExitCodeSIGINT follows the shell convention of 128 + signal number.
	ExitCodeSIGINT = 130
)

// ExitCodeName returns a short label for an exit code, used in the final log line.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeConfig:
		return "configuration error"
	case ExitCodeAuth:
		return "authentication error"
	case ExitCodeRowsFailed:
		return "finished with failed rows"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	default:
		return "unknown"
	}
}
