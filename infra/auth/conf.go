package auth

import "golang.org/x/oauth2/clientcredentials"

// Conf holds the OAuth2 client-credentials settings of an outbound client.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret" env:"ENROLLMAIL_OAUTH_CLIENT_SECRET"`
	AuthURL      string   `json:"auth_url"`
	Scopes       []string `json:"scopes"`
}

// Enabled reports whether a token endpoint is configured.
func (c Conf) Enabled() bool { return c.AuthURL != "" }

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.AuthURL,
		Scopes:       c.Scopes,
	}
}
