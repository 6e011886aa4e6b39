package txmanager

import "strings"

// permanentErrorPatterns are node errors that will never succeed on retry,
// regardless of fees or nonce.
var permanentErrorPatterns = []string{
	"execution reverted",
}

// IsPermanentError reports whether err is a contract level rejection.
func IsPermanentError(err error) bool {
	for _, pattern := range permanentErrorPatterns {
		if containsErr(err, pattern) {
			return true
		}
	}
	return false
}

func isNonceTooLow(err error) bool {
	return containsErr(err, "nonce too low")
}

func isUnderpriced(err error) bool {
	return containsErr(err, "replacement transaction underpriced") ||
		containsErr(err, "transaction underpriced") ||
		containsErr(err, "tip too low")
}

func isFeeTooLow(err error) bool {
	return containsErr(err, "fee cap too low") ||
		containsErr(err, "max fee per gas less than block base fee")
}

func isAlreadyKnown(err error) bool {
	return containsErr(err, "already known")
}

// isBenignSendErr matches errors returned when the very same signed
// transaction is sent again: it is either pooled already or mined.
func isBenignSendErr(err error) bool {
	return isAlreadyKnown(err) || isNonceTooLow(err)
}

func containsErr(err error, sub string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), strings.ToLower(sub))
}
