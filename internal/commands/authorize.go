package commands

import (
	"context"
)

const (
	authorizeTitle       = "**Link Bungie and Discord accounts here**"
	authorizeDescription = "Authorize the bot to read your Destiny 2 raid history before requesting raid stats."
)

// LinkIssuer builds a consent link that, once completed, binds userID to username.
type LinkIssuer interface {
	AuthorizationLink(userID, username string) (string, error)
}

// AuthorizeHandler replies with the account linking link.
type AuthorizeHandler struct {
	links LinkIssuer
}

// NewAuthorizeHandler constructs an AuthorizeHandler.
func NewAuthorizeHandler(links LinkIssuer) *AuthorizeHandler {
	return &AuthorizeHandler{links: links}
}

// Handle implements Handler.
func (h *AuthorizeHandler) Handle(ctx context.Context, req Request) (Response, error) {
	link, err := h.links.AuthorizationLink(req.UserID, req.Username)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Title:       authorizeTitle,
		Description: authorizeDescription,
		URL:         link,
		Ephemeral:   true,
	}, nil
}
