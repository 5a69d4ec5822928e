// Package shared holds helpers used by several packages that belong to no
// single domain.
//
// The testutil subpackage provides a capturing slog handler and CSV and
// multipart fixtures for handler and service tests:
//
//	logger, logs := testutil.NewTestLogger(t)
//	body, contentType := testutil.MultipartUpload(t, "contacts.csv", testutil.ContactsCSV(t), map[string]string{
//	    "emailColumnIndex": "1",
//	})
package shared
