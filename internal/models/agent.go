package models

// Agent is the directory record of a merchandiser as returned by the backend.
type Agent struct {
	ID          int64  `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

// StoreRef names a store together with its backend id.
type StoreRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
