package model

// SessionStatus represents the visitor session lifecycle state
type SessionStatus string

const (
	SessionActive                 SessionStatus = "ACTIVE"
	SessionAwaitingLeadCapture    SessionStatus = "AWAITING_LEAD_CAPTURE"
	SessionAwaitingInstallConfirm SessionStatus = "AWAITING_INSTALL_CONFIRM"
	SessionCredentialsIssued      SessionStatus = "CREDENTIALS_ISSUED"
	SessionClosePending           SessionStatus = "CLOSE_PENDING"
	SessionClosed                 SessionStatus = "CLOSED"
	SessionExpired                SessionStatus = "EXPIRED"
)

// MessageFrom distinguishes who authored a chat message
type MessageFrom string

const (
	FromClient MessageFrom = "client"
	FromBot    MessageFrom = "bot"
)

// ButtonColor is the cosmetic color tag of a button
type ButtonColor string

const (
	ColorGreen ButtonColor = "green"
	ColorBlue  ButtonColor = "blue"
	ColorRed   ButtonColor = "red"
)

// ButtonAction tags bot messages that require a widget-side action
const (
	ActionRequestTest = "REQUEST_TEST"
)

// Bot operating modes
const (
	ModeIA     = "ia"
	ModeButton = "button"
)

// StatusButtonOnly hides the free-text input on the widget
const StatusButtonOnly = 1

// ButtonNode is one selectable option in the admin-authored tree.
// A node descends into SubButtons when they are non-empty; otherwise a click
// terminates at its response. RedirectURL and APIURL are independent side
// effects and may coexist with SubButtons.
type ButtonNode struct {
	ID           string            `json:"id"`
	Label        string            `json:"label"`
	ResponseText string            `json:"responseText"`
	ActionType   string            `json:"actionType,omitempty"`
	MediaURL     string            `json:"mediaUrl,omitempty"`
	MediaType    string            `json:"mediaType,omitempty"`
	RedirectURL  string            `json:"redirectUrl,omitempty"`
	APIURL       string            `json:"apiUrl,omitempty"`
	APIMethod    string            `json:"apiMethod,omitempty"`
	APIHeaders   map[string]string `json:"apiHeaders,omitempty"`
	Pulse        bool              `json:"pulse,omitempty"`
	Color        ButtonColor       `json:"color,omitempty"`
	SubButtons   []ButtonNode      `json:"subButtons,omitempty"`
}

// BotConfig is the admin-owned root of the button tree plus display identity.
// Visitors only ever read it; mutation goes through the admin surface.
type BotConfig struct {
	IsEnabled      bool         `json:"isEnabled"`
	Mode           string       `json:"mode"`
	Status         int          `json:"status"`
	BotName        string       `json:"botName,omitempty"`
	BotAvatarURL   string       `json:"botAvatarUrl,omitempty"`
	WelcomeMessage string       `json:"welcomeMessage"`
	RootButtons    []ButtonNode `json:"rootButtons"`
}

// ChatMessage is one entry in a session's append-only log
type ChatMessage struct {
	ID           string      `json:"messageId"`
	SessionID    string      `json:"sessionId"`
	From         MessageFrom `json:"fromType"`
	Text         string      `json:"text"`
	MediaURL     string      `json:"mediaUrl,omitempty"`
	MediaType    string      `json:"mediaType,omitempty"`
	ButtonAction string      `json:"buttonAction,omitempty"`
	HasButton    bool        `json:"hasButton,omitempty"`
	CreatedAt    string      `json:"timestamp"`
}

// Lead is the captured visitor identity. PIN is exactly two digits and
// WhatsApp digits-only; both are locked once credentials exist for the number.
type Lead struct {
	Name     string `json:"name"`
	WhatsApp string `json:"whatsapp"`
	PIN      string `json:"pin"`
}

// Credentials is a trial username/password pair, issued once per WhatsApp number
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// VisitorSession owns one visitor's conversation state
type VisitorSession struct {
	ID              string        `json:"sessionId"`
	Status          SessionStatus `json:"status"`
	CurrentButtons  []ButtonNode  `json:"currentButtons"`
	PendingButtonID string        `json:"pendingButtonId,omitempty"`
	Lead            *Lead         `json:"lead,omitempty"`
	Credentials     *Credentials  `json:"credentials,omitempty"`
	MigratedTo      string        `json:"migratedTo,omitempty"`
	CreatedAt       string        `json:"createdAt,omitempty"`
	UpdatedAt       string        `json:"updatedAt,omitempty"`
}

// TrialAccount is the durable record backing idempotent issuance
type TrialAccount struct {
	WhatsApp         string `json:"whatsapp"`
	PIN              string `json:"pin"`
	Name             string `json:"name"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	PaymentConfirmed bool   `json:"paymentConfirmed"`
	CreatedAt        string `json:"createdAt,omitempty"`
}
