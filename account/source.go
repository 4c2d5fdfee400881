package account

// Source supplies the ordered list of configured account credentials.
type Source interface {
	Credentials() ([]*Credential, error)
}
