package clients

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/spacesedan/sentiboard/config"
)

// NewAuthHTTPClient returns base unchanged unless a token URL is configured,
// in which case every request carries a client-credentials bearer token.
// Tokens are fetched through base and refreshed when they expire.
func NewAuthHTTPClient(ctx context.Context, auth config.AuthConfig, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if auth.TokenURL == "" {
		return base
	}

	conf := &clientcredentials.Config{
		ClientID:     auth.ClientID,
		ClientSecret: auth.ClientSecret,
		TokenURL:     auth.TokenURL,
		Scopes:       auth.Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	client := conf.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	client.Timeout = base.Timeout
	return client
}
