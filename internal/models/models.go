package models

import "time"

// Tenant is an onboarded business with one linked platform page.
// PageID is the tenant's own channel account id; it is the single field
// used for business-role detection and inbound routing.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	PageID    string    `json:"page_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Owner holds the long-lived user-level credential shared by all tenants
// the owner has linked.
type Owner struct {
	ID               string    `json:"id"`
	UserToken        string    `json:"user_token"`
	TokenRefreshedAt time.Time `json:"token_refreshed_at"`
}

// ChannelCredential is a page-scoped token minted from an owner token.
type ChannelCredential struct {
	TenantID    string    `json:"tenant_id"`
	ChannelID   string    `json:"channel_id"`
	Token       string    `json:"token"`
	RefreshedAt time.Time `json:"refreshed_at"`
	DerivedFrom string    `json:"derived_from"`
}

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleBusiness Role = "business"
)

// LoggedMessage is one conversational message, inbound or outbound.
// Rows are immutable; a delete event removes the row with the matching
// provider message id instead of writing a new one.
type LoggedMessage struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	ProviderMessageID string         `json:"provider_message_id"`
	SenderID          string         `json:"sender_id"`
	RecipientID       string         `json:"recipient_id"`
	Direction         Direction      `json:"direction"`
	Classification    Classification `json:"classification"`
	Text              string         `json:"text"`
	AttachmentType    string         `json:"attachment_type,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Participant is one platform user in a tenant's conversations, with
// profile fields extracted opportunistically from message text.
type Participant struct {
	PlatformUserID string    `json:"platform_user_id"`
	TenantID       string    `json:"tenant_id"`
	Role           Role      `json:"role"`
	Name           string    `json:"name,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	Location       string    `json:"location,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
