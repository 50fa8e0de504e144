package types

import "time"

type LogEntry struct {
	ID        int64
	Unit      string
	Stage     string
	Text      string
	CreatedAt time.Time
}

type JobRecord struct {
	ID        int64
	Runner    string
	Units     []string
	Status    JobStatus
	Message   string
	CreatedAt time.Time
}

// Message is one delimited broker payload: "<op>:<payload>".
type Message struct {
	Op      MessageOp
	Payload string
}

func (m Message) String() string {
	return string(m.Op) + ":" + m.Payload
}

// Delivery is a received message that must be acknowledged once handled.
type Delivery struct {
	Body string
	Ack  func() error
}

type DebRequest struct {
	Package    *Package
	StagingDir string
	OutputDir  string
	// Depends maps a required package name to its minimum version.
	Depends map[string]string
	// InstalledSize is in KiB.
	InstalledSize int64
}
