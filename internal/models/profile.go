package models

// Profile is the opaque identity + display attributes a client hands us when
// it starts searching. UID comes from the auth collaborator (see the /anonid
// endpoint); the rest is shown to the matched partner as-is.
type Profile struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Country string `json:"country"`
	Gender  string `json:"gender"`
}
