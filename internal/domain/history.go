package domain

// CustomerHistory is a customer together with the business history that
// references it by phone.
type CustomerHistory struct {
	Customer
	Orders       []Order       `json:"orders"`
	Interactions []Interaction `json:"interactions"`
	Tasks        []Task        `json:"tasks"`
}
