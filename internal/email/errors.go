package email

import "fmt"

// DataError reports a malformed or incomplete recipient descriptor.
type DataError struct {
	File  string
	Field string
	Err   error
}

func (e *DataError) Error() string {
	switch {
	case e.File != "" && e.Field != "":
		return fmt.Sprintf("descriptor %s: field %q: %v", e.File, e.Field, e.Err)
	case e.File != "":
		return fmt.Sprintf("descriptor %s: %v", e.File, e.Err)
	case e.Field != "":
		return fmt.Sprintf("descriptor field %q: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("descriptor: %v", e.Err)
	}
}

func (e *DataError) Unwrap() error { return e.Err }

// ConfigError reports a configuration key that is missing or unusable.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config key %q: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DeliveryError reports a transport failure while delivering a batch.
// Index is the position of the failing message, or -1 when the session
// could not be opened.
type DeliveryError struct {
	Index int
	To    string
	File  string
	Err   error
}

func (e *DeliveryError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("open transport session: %v", e.Err)
	}
	if e.File != "" {
		return fmt.Sprintf("deliver message %d to %s (%s): %v", e.Index, e.To, e.File, e.Err)
	}
	return fmt.Sprintf("deliver message %d to %s: %v", e.Index, e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
