/*
Package authsdk is the client side of the authcore operational surface.

# Overview

Services that sit behind authcore need two things from it: the public keys
its access tokens are signed with, and occasionally the profile behind a
token. Client covers the HTTP calls, RemoteVerifier turns the published JWKS
into a token verifier.

	client := authsdk.NewClient("https://auth.example.com")

	health, err := client.GetReadiness(ctx)
	jwks, err := client.GetJWKS(ctx)
	user, err := client.GetUserInfo(ctx, accessToken)

# Verifying tokens locally

RemoteVerifier fetches the key set on first use and again whenever a token
names a kid it has not seen, at most once per MinRefreshInterval. It
satisfies httpx.TokenVerifier, so a resource server guards its routes with
the same middleware authcore uses:

	verifier := authsdk.NewRemoteVerifier(client, authsdk.VerifierOptions{
		Issuer:   "authcore",
		Audience: "authcore-api",
	})

	mux.Handle("GET /tasks", httpx.Chain(tasksHandler,
		httpx.AuthnMiddleware(verifier),
		httpx.RequirePermission("tasks:read:own"),
	))

# Errors

Non-2xx responses are returned as *APIError carrying the status and the
{"error", "error_description"} body:

	user, err := client.GetUserInfo(ctx, token)
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		// refresh and retry
	}

# Thread Safety

Client and RemoteVerifier are safe for concurrent use.
*/
package authsdk
