package storeadapter

type StoreErrorReason string

const (
	StoreErrorInvalid         StoreErrorReason = ""
	StoreErrorKeyNotFound     StoreErrorReason = "KeyNotFound"
	StoreErrorNodeExists      StoreErrorReason = "NodeExists"
	StoreErrorVersionMismatch StoreErrorReason = "VersionMismatch"
	StoreErrorNodeNotEmpty    StoreErrorReason = "NodeNotEmpty"
	StoreErrorTimeout         StoreErrorReason = "Timeout Reaching Store"
	StoreErrorSessionExpired  StoreErrorReason = "SessionExpired"
	StoreErrorNotConnected    StoreErrorReason = "NotConnected"
)

var (
	ErrorKeyNotFound     = NewStoreError(StoreErrorKeyNotFound)
	ErrorNodeExists      = NewStoreError(StoreErrorNodeExists)
	ErrorVersionMismatch = NewStoreError(StoreErrorVersionMismatch)
	ErrorNodeNotEmpty    = NewStoreError(StoreErrorNodeNotEmpty)
	ErrorTimeout         = NewStoreError(StoreErrorTimeout)
	ErrorSessionExpired  = NewStoreError(StoreErrorSessionExpired)
	ErrorNotConnected    = NewStoreError(StoreErrorNotConnected)
)

type StoreError struct {
	reason StoreErrorReason
}

func NewStoreError(reason StoreErrorReason) StoreError {
	return StoreError{reason: reason}
}

func (err StoreError) Error() string {
	return string(err.reason)
}

func (err StoreError) Reason() StoreErrorReason {
	return err.reason
}

func isStoreErrorWithReason(err error, reason StoreErrorReason) bool {
	storeErr, ok := err.(StoreError)
	if !ok {
		return false
	}
	return storeErr.reason == reason
}

func IsKeyNotFoundError(err error) bool {
	return isStoreErrorWithReason(err, StoreErrorKeyNotFound)
}

func IsNodeExistsError(err error) bool {
	return isStoreErrorWithReason(err, StoreErrorNodeExists)
}

func IsVersionMismatchError(err error) bool {
	return isStoreErrorWithReason(err, StoreErrorVersionMismatch)
}

func IsNodeNotEmptyError(err error) bool {
	return isStoreErrorWithReason(err, StoreErrorNodeNotEmpty)
}

func IsTimeoutError(err error) bool {
	return isStoreErrorWithReason(err, StoreErrorTimeout)
}

func IsSessionExpiredError(err error) bool {
	return isStoreErrorWithReason(err, StoreErrorSessionExpired)
}
