package ports

import "context"

// SessionCredentials resolve one device's interactive login.
type SessionCredentials struct {
	Host       string
	Port       int
	User       string
	Password   string
	PrivateKey string
	OTPCode    string
}

// SessionDriver is one interactive session with one device. Dial must be
// called before Run or Upload; Close tears the session down and is safe to
// call whether or not Dial succeeded.
type SessionDriver interface {
	Dial(ctx context.Context) error
	Run(ctx context.Context, cmd string) (string, error)
	Upload(ctx context.Context, path string, content []byte) error
	Close() error
}

// DriverFactory builds a session driver per device attempt. Injected so the
// engine and its tests never depend on a concrete transport.
type DriverFactory interface {
	New(creds SessionCredentials) SessionDriver
}
