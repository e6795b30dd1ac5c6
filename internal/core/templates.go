package core

// templates.go manages message templates used by the communication dispatcher.
//
// Templates are immutable once created. Bodies and subjects reference
// variables as {{name}}; every placeholder must be declared in Variables
// when the template is created.

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ChannelType is a delivery medium.
type ChannelType string

const (
	ChannelSMS      ChannelType = "sms"
	ChannelEmail    ChannelType = "email"
	ChannelWhatsApp ChannelType = "whatsapp"
)

// placeholderRegex matches {{ name }} placeholders.
var placeholderRegex = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// MessageTemplate is a named message with placeholders.
type MessageTemplate struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      ChannelType `json:"type"`
	Subject   string      `json:"subject,omitempty"`
	Body      string      `json:"body"`
	Variables []string    `json:"variables"`
	Category  string      `json:"category,omitempty"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"createdAt"`
}

// CreateTemplateRequest is the input for TemplateRegistry.Create.
type CreateTemplateRequest struct {
	ID        string      `json:"id" validate:"omitempty,max=64"`
	Name      string      `json:"name" validate:"required,max=120"`
	Type      ChannelType `json:"type" validate:"required,oneof=sms email whatsapp"`
	Subject   string      `json:"subject" validate:"max=200"`
	Body      string      `json:"body" validate:"required"`
	Variables []string    `json:"variables" validate:"dive,required"`
	Category  string      `json:"category" validate:"max=60"`
	Active    *bool       `json:"active"`
}

// Placeholders returns the distinct placeholder names in s, in order of
// first appearance.
func Placeholders(s string) []string {
	matches := placeholderRegex.FindAllStringSubmatch(s, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return lo.Uniq(names)
}

// TemplateRegistry holds message templates.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]MessageTemplate
	validate  *validator.Validate
	now       func() time.Time
}

// NewTemplateRegistry creates a registry seeded with the given templates.
// Seeds that fail validation cause an error.
func NewTemplateRegistry(seed ...CreateTemplateRequest) (*TemplateRegistry, error) {
	r := &TemplateRegistry{
		templates: make(map[string]MessageTemplate),
		validate:  validator.New(),
		now:       time.Now,
	}
	for _, req := range seed {
		if _, err := r.Create(req); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Create validates and stores a new template.
func (r *TemplateRegistry) Create(req CreateTemplateRequest) (MessageTemplate, error) {
	if err := r.validate.Struct(req); err != nil {
		return MessageTemplate{}, withHint(ValidationErrorf("invalid template: %v", err), "Check the template fields")
	}

	declared := lo.Uniq(lo.Map(req.Variables, func(v string, _ int) string { return strings.TrimSpace(v) }))
	used := Placeholders(req.Subject + "\n" + req.Body)
	if undeclared := lo.Without(used, declared...); len(undeclared) > 0 {
		return MessageTemplate{}, ValidationErrorf("template uses undeclared variables: %s", strings.Join(undeclared, ", "))
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	t := MessageTemplate{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		Type:      req.Type,
		Subject:   req.Subject,
		Body:      req.Body,
		Variables: declared,
		Category:  req.Category,
		Active:    active,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[id]; exists {
		return MessageTemplate{}, ValidationErrorf("template %q already exists", id)
	}
	r.templates[id] = t
	return cloneTemplate(t), nil
}

// Get returns the template with the given id.
func (r *TemplateRegistry) Get(id string) (MessageTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return MessageTemplate{}, NotFoundErrorf("template %q not found", id)
	}
	return cloneTemplate(t), nil
}

// List returns all templates sorted by category then id.
func (r *TemplateRegistry) List() []MessageTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MessageTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneTemplate(t MessageTemplate) MessageTemplate {
	t.Variables = cloneStrings(t.Variables)
	return t
}

// DefaultTemplates are the templates every deployment starts with.
func DefaultTemplates() []CreateTemplateRequest {
	return []CreateTemplateRequest{
		{
			ID: "welcome", Name: "Welcome", Type: ChannelSMS, Category: "registration",
			Body:      "Hello {{farmerName}}, welcome to the farmer network. Your partner {{partner}} will contact you shortly.",
			Variables: []string{"farmerName", "partner"},
		},
		{
			ID: "documentation_reminder", Name: "Documentation reminder", Type: ChannelSMS, Category: "documentation",
			Body:      "Hi {{farmerName}}, please submit your {{documentType}} to complete your registration.",
			Variables: []string{"farmerName", "documentType"},
		},
		{
			ID: "training_invite", Name: "Training invitation", Type: ChannelEmail, Category: "training",
			Subject:   "Training invitation for {{farmerName}}",
			Body:      "Dear {{farmerName}},\n\nYou are invited to the {{moduleName}} training on {{trainingDate}}.",
			Variables: []string{"farmerName", "moduleName", "trainingDate"},
		},
		{
			ID: "follow_up", Name: "Follow-up", Type: ChannelSMS, Category: "follow_up",
			Body:      "Hello {{farmerName}}, your agent will follow up on your {{stage}} stage. Reply to this message with any questions.",
			Variables: []string{"farmerName", "stage"},
		},
		{
			ID: "activation_complete", Name: "Activation complete", Type: ChannelEmail, Category: "activation",
			Subject:   "Your account is active",
			Body:      "Congratulations {{farmerName}}, your marketplace account is now active.",
			Variables: []string{"farmerName"},
		},
	}
}
