// Данный файл должен быть сгенерирован из openapi спецификации и называться types.gen.go
package rest

type CreateSessionRequest struct {
	VendorID   string `json:"vendorId" validate:"required"`
	CustomerID string `json:"customerId"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type DateRange struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

type Package struct {
	ID           string            `json:"id" validate:"required"`
	ProviderID   string            `json:"providerId" validate:"required"`
	Price        string            `json:"price" validate:"required"`
	Currency     string            `json:"currency" validate:"required,len=3"`
	Availability int               `json:"availability" validate:"gte=0"`
	Dates        []DateRange       `json:"dates,omitempty" validate:"dive"`
	Details      map[string]string `json:"details,omitempty"`
}

type AddPackageRequest struct {
	Package Package `json:"package" validate:"required"`
}

type ModificationRequest struct {
	Type   string `json:"type" validate:"required,oneof=SET_MARGIN SET_FINAL_PRICE APPLY_DISCOUNT REMOVE_PACKAGE"`
	ItemID string `json:"itemId" validate:"required"`
	Value  string `json:"value"`
}

type Session struct {
	SessionID      string         `json:"sessionId"`
	VendorID       string         `json:"vendorId"`
	CustomerID     string         `json:"customerId,omitempty"`
	RuleSetVersion int            `json:"ruleSetVersion"`
	Status         string         `json:"status"`
	Items          []Package      `json:"items"`
	Modifications  []Modification `json:"modifications,omitempty"`
	StartedAt      string         `json:"startedAt"`
}

type Modification struct {
	Seq       int    `json:"seq"`
	ItemID    string `json:"itemId"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	AppliedAt string `json:"appliedAt"`
}

type BudgetItem struct {
	Package          Package `json:"package"`
	FinalPrice       string  `json:"finalPrice"`
	MarginPercentage string  `json:"marginPercentage"`
}

type Change struct {
	Type     string         `json:"type"`
	ItemID   string         `json:"itemId,omitempty"`
	OldValue any            `json:"oldValue,omitempty"`
	NewValue any            `json:"newValue,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ClientInfo struct {
	Name  string `json:"clientName"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Budget struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"sessionId"`
	VendorID   string       `json:"vendorId"`
	Client     ClientInfo   `json:"client"`
	Status     string       `json:"status"`
	Version    int          `json:"version"`
	Items      []BudgetItem `json:"items"`
	Changes    []Change     `json:"changes,omitempty"`
	TotalPrice string       `json:"totalPrice"`
	CreatedAt  string       `json:"createdAt"`
	UpdatedAt  string       `json:"updatedAt"`
}

type ReconstructRequest struct {
	Strategy string `json:"strategy" validate:"required,oneof=PRESERVE_MARGIN PRESERVE_PRICE ADJUST_PROPORTIONALLY BEST_ALTERNATIVE"`
}

type ReconstructResponse struct {
	Budget   Budget    `json:"budget"`
	Warnings []Warning `json:"warnings,omitempty"`
}

type Warning struct {
	ID        string `json:"id"`
	ItemID    string `json:"itemId,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

type WarningList struct {
	Warnings []Warning `json:"warnings"`
}

// Error Модель ошибок
type Error struct {
	// Code Код ошибки
	Code ErrorCode `json:"code"`

	// Message Сообщение об ошибке (для отображения в UI в будущем)
	Message string `json:"message"`
}

// ErrorCode Код ошибки
type ErrorCode string
