package model

// Organization is the tenant boundary.
type Organization struct {
	ID     string   `json:"-"`
	Admins []string `json:"admins"`
}

// Customer is the admin-owned customer record.
type Customer struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Surname               string   `json:"surname"`
	Category              Category `json:"category"`
	Email                 string   `json:"email,omitempty"`
	Phone                 string   `json:"phone,omitempty"`
	Birthday              string   `json:"birthday,omitempty"`
	CertificateExpiration string   `json:"certificateExpiration,omitempty"`
	SecretKey             string   `json:"secretKey,omitempty"`
	ExtendedDate          string   `json:"extendedDate,omitempty"`
	Deleted               bool     `json:"deleted,omitempty"`
}
