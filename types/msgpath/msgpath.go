// Package msgpath contains path maintenance message definitions and parsing
// methods, sent between peers directly over their candidate paths.
//
// Path message interface definitions are sealed within this package.
package msgpath

type PathMessage interface {
	MarshalPathMessage() []byte

	Debug() string
}
