package socks5

// CredentialLookup is the read-only collaborator the negotiator
// consults for username/password auth. How it is populated (static
// map, file, cache) is outside the core's concern; see pkg/credentials
// for concrete implementations. Verify owns the comparison itself
// (rather than returning the password on file) so a store can back
// onto hashed credentials without ever handing a comparable plaintext
// value back across the package boundary.
type CredentialLookup interface {
	Verify(username, password string) bool
}

// AuthSettings is the process-wide, immutable-after-startup
// authentication configuration.
type AuthSettings struct {
	SelectedMethod AuthMethod
	Credentials    CredentialLookup // required when SelectedMethod == AuthPassword
}

// negotiate runs the method-selection and, if applicable, the
// username/password sub-negotiation described in RFC 1929. conn is the
// framed connection already established for this connection.
func negotiate(conn *phaseConn, hello ClientHello, settings AuthSettings) error {
	selected := AuthNoAcceptable
	for _, m := range hello.Methods {
		if m == settings.SelectedMethod {
			selected = settings.SelectedMethod
			break
		}
	}

	if _, err := conn.Write(SerializeServerHello(selected)); err != nil {
		return wrapIO(err)
	}

	if selected == AuthNoAcceptable {
		return ErrNoAcceptableAuth
	}

	if selected != AuthPassword {
		return nil
	}

	body, err := conn.readUserPassAuth()
	if err != nil {
		return err
	}
	auth, err := ParseClientUserPassAuth(body)
	if err != nil {
		return err
	}

	ok := credentialsMatch(settings.Credentials, auth.Username, auth.Password)

	if _, err := conn.Write(SerializeServerUserPassResponse(ok)); err != nil {
		return wrapIO(err)
	}
	if !ok {
		return ErrFailedAuth
	}
	return nil
}

// credentialsMatch delegates the username/password check to store.
// RFC 1929 does not require the comparison to be constant-time, but
// every store in pkg/credentials makes it so.
func credentialsMatch(store CredentialLookup, username, password string) bool {
	if store == nil {
		return false
	}
	return store.Verify(username, password)
}
