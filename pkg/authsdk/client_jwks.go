package authsdk

import (
	"context"
)

// GetJWKS retrieves the JSON Web Key Set for token verification.
func (c *Client) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	var jwks JWKSResponse
	if err := c.get(ctx, "/.well-known/jwks.json", "", &jwks); err != nil {
		return nil, err
	}
	return &jwks, nil
}

// GetUserInfo returns the user behind accessToken. The token must carry
// profile:read:own.
func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (*UserInfoResponse, error) {
	var user UserInfoResponse
	if err := c.get(ctx, "/v1/userinfo", accessToken, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
