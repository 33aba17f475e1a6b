/*
Package gatewaysdk is a Go client for the modelgate inference gateway.

# Client vs Session

A Client covers the unauthenticated endpoints (/token, /livez, /readyz). A
Session holds an access token and calls the authenticated ones:

	client := gatewaysdk.NewClient("https://gateway.example.com")

	session, err := client.Authenticate(ctx, secret)
	if err != nil {
		return err
	}

	pred, err := session.Predict(ctx, []float64{5.1, 3.5, 1.4, 0.2})
	switch {
	case gatewaysdk.IsQuotaExceeded(err):
		var gerr *gatewaysdk.GatewayError
		errors.As(err, &gerr)
		time.Sleep(time.Duration(gerr.RetryAfter) * time.Second)
	case err != nil:
		return err
	}
	fmt.Println(pred.Prediction, pred.ModelVersion)

# Token Re-issue

The gateway has no refresh tokens. A Session created with Authenticate keeps
the secret and calls /token again shortly before the access token expires.
Sessions built with NewSessionFromToken cannot do this and return
ErrSessionExpired instead.

# Errors

Every non-2xx response is returned as a *GatewayError carrying the HTTP
status, the error code, and for /predict the audit decision in Reason.
*/
package gatewaysdk
