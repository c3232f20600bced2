package config

const (
	providerVar         = "IDP_PROVIDER"
	oidcIssuerVar       = "OIDC_ISSUER"
	oidcClientIDVar     = "OIDC_CLIENT_ID"
	oidcClientSecretVar = "OIDC_CLIENT_SECRET"
	localSeedEmailVar   = "LOCAL_SEED_EMAIL"
	localSeedPassVar    = "LOCAL_SEED_PASSWORD"
	localSeedNameVar    = "LOCAL_SEED_NAME"

	ProviderLocal = "local"
	ProviderOIDC  = "oidc"
)

type Provider struct{}

var _ ProviderConfig = Provider{}

func (Provider) GetProvider() string {
	return GetEnv(providerVar, ProviderLocal)
}

func (Provider) GetOIDCIssuer() string {
	return GetEnv(oidcIssuerVar, "")
}

func (Provider) GetOIDCClientID() string {
	return GetEnv(oidcClientIDVar, "")
}

func (Provider) GetOIDCClientSecret() string {
	return GetEnv(oidcClientSecretVar, "")
}

// The seed user is created in the local provider at startup when both values are set.
func (Provider) GetLocalSeedEmail() string {
	return GetEnv(localSeedEmailVar, "")
}

func (Provider) GetLocalSeedPassword() string {
	return GetEnv(localSeedPassVar, "")
}

func (Provider) GetLocalSeedName() string {
	return GetEnv(localSeedNameVar, "Admin")
}
