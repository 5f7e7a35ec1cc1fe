package domain

// ProviderSummary is an entry of the upstream provider list.
type ProviderSummary struct {
	Code    string `json:"code"`
	Country string `json:"country"`
	Name    string `json:"name"`
}

// AuthField describes one credential a provider expects at login.
type AuthField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Interactive bool   `json:"interactive"`
	Optional    bool   `json:"optional"`
	Label       string `json:"label"`
}

// Bank is the institution behind a provider.
type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Logo string `json:"logo"`
}

// Provider is the detailed description of a bank provider.
type Provider struct {
	Name        string      `json:"name"`
	Country     string      `json:"country"`
	AuthFields  []AuthField `json:"auth_fields"`
	AccountType []string    `json:"account_type,omitempty"`
	Bank        Bank        `json:"bank"`
}

// SandboxProvider is the upstream test provider; it is never listed in the catalog.
const SandboxProvider = "test"
