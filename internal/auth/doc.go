// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package auth verifies operator bearer tokens.

Participants are not authenticated here: their identity is the participant
id they join with. Operator routes (force sync, reconnect, host override)
are guarded by HS256 JWTs carrying a role claim:

  - operator: force a resync, reset a participant's connection
  - admin: everything an operator can do, plus transfer host authority
    even when the party has no host

Tokens must be signed with security.operator_secret, carry an expiry and,
when security.token_issuer is set, a matching iss claim. Tokens signed with
any other algorithm (including "none") are rejected.

When no operator secret is configured, RequireRole lets every request
through with admin claims. Configuration validation refuses that setup in
production.

Example:

	tokens, err := auth.NewTokenManager(cfg.Security.OperatorSecret, cfg.Security.TokenIssuer, time.Hour)
	if err != nil {
	    return err
	}
	mw := auth.NewMiddleware(tokens)
	r.With(mw.RequireRole(auth.RoleAdmin)).Post("/parties/{partyID}/transfer-host", h.TransferHost)
*/
package auth
