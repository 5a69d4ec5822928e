// Package http implements the HTTP and WebSocket handlers of csvmail. It is a
// thin layer between the chi router and the services package: handlers parse
// and validate requests, call one service method and render the result.
//
// # Routes
//
//	POST   /csv-processor/preview               multipart file + emailColumnIndex
//	POST   /csv-processor/process               multipart file + emailColumnIndex + removeEmptyEmails
//	GET    /csv-processor/files/{filename}      download a stored artifact
//	POST   /email-validator/validate/{filename} {"emailColumnIndex": 2}, ?wait=false for 202
//	GET    /email-validator/jobs/{filename}     job record
//	DELETE /email-validator/jobs/{filename}     request cancellation
//	GET    /ws/validation/{filename}            live job events
//	GET    /api/health, /api/health/ready, /api/health/live, /api/version
//
// Each handler exposes Routes() and is mounted by internal/app.
//
// # Handler Structure
//
//	func (h *Handler) HandleSomething(w http.ResponseWriter, r *http.Request) {
//	    req := parse(r)
//	    if err := h.validator.Struct(req); err != nil {
//	        h.errorHandler.HandleError(w, r, err)
//	        return
//	    }
//	    result, err := h.service.DoSomething(r.Context(), req)
//	    if err != nil {
//	        h.errorHandler.HandleError(w, r, err)
//	        return
//	    }
//	    render.JSON(w, r, toResponse(result))
//	}
//
// # Error Handling
//
// Every error goes through apierrors.ErrorHandler and is written as an RFC
// 7807 problem document. The detail carries the message clients display.
//
// # WebSocket Support
//
// A subscription is scoped to one file token. The client first receives a
// validation:snapshot frame with the current job, then the queue's
// validation:* events for that token until either side closes.
//
// # Testing
//
// Handlers are tested with httptest against real services backed by a
// temp-dir artifact store.
package http
