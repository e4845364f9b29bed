// Package email defines the message model and error kinds shared by the
// builder, the sender and the transports.
package email

// Message is one composed notification ready for delivery.
type Message struct {
	// To is the envelope recipient, taken from the descriptor's email field.
	To string

	// Text is the complete message: header block, newline, body block.
	Text string

	// File is the descriptor file the message was built from, if any.
	File string
}

// Batch is an ordered sequence of messages delivered over one session.
type Batch []Message

// Recipients returns the envelope recipients of the batch in order.
func (b Batch) Recipients() []string {
	out := make([]string, 0, len(b))
	for _, m := range b {
		out = append(out, m.To)
	}
	return out
}
