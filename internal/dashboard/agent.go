package dashboard

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/auth"
	"github.com/visionboost/portal/internal/dashboard/stats"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/shared"
)

type agentOverviewData struct {
	pageData
	Stats   api.AgentStats
	Clients stats.ClientSummary
	Unread  int
	Recent  []api.Message
}

func (h *Handler) agentOverview(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	state := auth.StateFromContext(r.Context())
	var (
		overview api.AgentStats
		clients  []api.ClientAccount
		messages []api.Message
	)
	failures := Join(r.Context(), h.logger,
		Into("stats", &overview, func(ctx context.Context) (api.AgentStats, error) { return h.backend.AgentStats(ctx, tok) }),
		Into("clients", &clients, func(ctx context.Context) ([]api.ClientAccount, error) { return h.backend.MyClients(ctx, tok) }),
		Into("messages", &messages, func(ctx context.Context) ([]api.Message, error) { return h.backend.Messages(ctx, tok) }),
	)
	data := agentOverviewData{
		pageData: newPageData(failures),
		Stats:    overview,
		Clients:  stats.Clients(clients),
		Unread:   stats.Unread(messages, state.User.ID),
		Recent:   head(messages, 5),
	}
	h.render(w, r, failures, "pages/agent_overview.html", "Agent overview", data)
}

func (h *Handler) agentClients(w http.ResponseWriter, r *http.Request) {
	h.clientsPage(w, r, "My clients", h.backend.MyClients)
}

type messageForm struct {
	RecipientID int64  `validate:"omitempty,gt=0"`
	Content     string `validate:"required,max=2000"`
}

type messagesData struct {
	pageData
	Messages   []api.Message
	Recipients []api.ClientAccount
	Unread     int
	Form       messageForm
	FormErrors map[string]string
	IsAgent    bool
}

func (h *Handler) messagesPage(w http.ResponseWriter, r *http.Request) {
	h.renderMessages(w, r, http.StatusOK, messageForm{}, nil)
}

func (h *Handler) renderMessages(w http.ResponseWriter, r *http.Request, status int, form messageForm, formErrors map[string]string) {
	tok := token(r)
	state := auth.StateFromContext(r.Context())
	isAgent := state.Role() == nav.RoleAgent

	var (
		messages   []api.Message
		recipients []api.ClientAccount
	)
	fetches := []Fetch{
		Into("messages", &messages, func(ctx context.Context) ([]api.Message, error) { return h.backend.Messages(ctx, tok) }),
	}
	if isAgent {
		fetches = append(fetches, Into("clients", &recipients, func(ctx context.Context) ([]api.ClientAccount, error) {
			return h.backend.MyClients(ctx, tok)
		}))
	}
	failures := Join(r.Context(), h.logger, fetches...)
	if failures.Unauthorized() {
		http.Redirect(w, r, nav.LoginRedirect(r), http.StatusSeeOther)
		return
	}
	data := messagesData{
		pageData:   newPageData(failures),
		Messages:   messages,
		Recipients: recipients,
		Unread:     stats.Unread(messages, state.User.ID),
		Form:       form,
		FormErrors: formErrors,
		IsAgent:    isAgent,
	}
	h.pages.Render(w, r, status, messagesTemplate(isAgent), "Messages", data)
}

func messagesTemplate(isAgent bool) string {
	if isAgent {
		return "pages/agent_messages.html"
	}
	return "pages/client_messages.html"
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	state := auth.StateFromContext(r.Context())
	form := messageForm{Content: strings.TrimSpace(r.PostFormValue("content"))}
	formErrors := make(map[string]string)
	if raw := strings.TrimSpace(r.PostFormValue("recipient")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			formErrors["RecipientID"] = "Choose a recipient"
		}
		form.RecipientID = id
	}
	if state.Role() == nav.RoleAgent && form.RecipientID == 0 {
		formErrors["RecipientID"] = "Choose a recipient"
	}
	if err := h.validator.Struct(form); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				formErrors[fe.Field()] = messageFieldError(fe)
			}
		}
	}
	if len(formErrors) > 0 {
		h.renderMessages(w, r, http.StatusBadRequest, form, formErrors)
		return
	}

	if _, err := h.backend.SendMessage(r.Context(), token(r), api.NewMessage{RecipientID: form.RecipientID, Content: form.Content}); err != nil {
		h.actionFailed(w, r, r.URL.Path, err)
		return
	}
	shared.Flash(r.Context(), "success", "Message sent")
	http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
}

func messageFieldError(fe validator.FieldError) string {
	switch fe.Field() {
	case "Content":
		if fe.Tag() == "max" {
			return "Messages are limited to 2000 characters"
		}
		return "Write a message first"
	default:
		return "Choose a recipient"
	}
}
