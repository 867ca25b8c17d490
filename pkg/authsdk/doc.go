/*
Package authsdk is a client for the accounts service and the home of the JSON
types both sides of the wire agree on.

# Browser-style sessions

The service authenticates with cookies, not bearer tokens. SDKClient keeps a
cookie jar, so after Login the session cookie travels with every request just
as it would in a browser:

	client := authsdk.NewSDKClient("https://accounts.example.com")

	_, err := client.Signup(ctx, authsdk.SignupRequest{
		Email:    "alice@example.com",
		Password: "correct horse battery staple",
		Name:     "Alice",
	})

	// Code arrives by email.
	_, err = client.VerifyEmail(ctx, code)

	me, err := client.CheckAuth(ctx)

# CSRF

Every unsafe request must echo the XSRF-TOKEN cookie in the X-CSRF-Token
header. The client does this itself and fetches a token from GET /api/auth/csrf
when the jar doesn't have one yet.

# Errors

Non-2xx responses are returned as *APIError carrying the service's error code:

	if authsdk.IsCode(err, authsdk.CodeEmailNotVerified) {
		// prompt for the verification code
	}
*/
package authsdk
