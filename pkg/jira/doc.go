// Package jira fetches pages of issues from a Jira server's REST search
// endpoint.
//
// Every request asks for one project's issues in ascending creation order,
// so an offset keeps pointing at the same issue while new ones are filed.
// Issues come back as raw JSON; normalization happens in pkg/transform.
//
//	client := jira.NewClientFromConfig(cfg, creds, log)
//	page, err := client.FetchPage(ctx, "KAFKA", 150)
//	if err != nil {
//	    var apiErr *errors.Error
//	    if stderrors.As(err, &apiErr) && apiErr.Type == errors.ErrorTypeAuth {
//	        // credentials rejected
//	    }
//	}
//
// Each attempt is bounded by the request timeout (30s by default) and
// classified: 429, 5xx, connection failures and attempt timeouts are
// retried by the client's retry.Policy; other 4xx responses, undecodable
// bodies and caller cancellation are returned immediately.
package jira
