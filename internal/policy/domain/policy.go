package domain

// Policy is a Rego module for package backoffice.credentials.
type Policy struct {
	ID      string // source name, e.g. the file path
	Rules   string
	Enabled bool
}
