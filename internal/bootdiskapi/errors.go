package bootdiskapi

import (
	"errors"
	"fmt"
	"net/http"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"

	"github.com/osbuild/osbuild-bootdisk/internal/common"
	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
	"github.com/osbuild/osbuild-bootdisk/internal/token"
)

const (
	ErrorCodePrefix = "BOOTDISK-"
	ErrorHREF       = "/api/bootdisk/v1/errors"

	ErrorUnauthenticated ServiceErrorCode = 401

	ErrorUnauthorized            ServiceErrorCode = 2
	ErrorImageTypeDisabled       ServiceErrorCode = 3
	ErrorUnsupportedArchitecture ServiceErrorCode = 4
	ErrorHostNotFound            ServiceErrorCode = 5
	ErrorMissingHostParam        ServiceErrorCode = 6
	ErrorTokenExpired            ServiceErrorCode = 7
	ErrorTokenInvalid            ServiceErrorCode = 8
	ErrorTokenMalformed          ServiceErrorCode = 9
	ErrorInvalidErrorId          ServiceErrorCode = 10
	ErrorErrorNotFound           ServiceErrorCode = 11
	ErrorInvalidPageParam        ServiceErrorCode = 12
	ErrorInvalidSizeParam        ServiceErrorCode = 13
	ErrorResourceNotFound        ServiceErrorCode = 14
	ErrorMethodNotAllowed        ServiceErrorCode = 15
	ErrorNotAcceptable           ServiceErrorCode = 16

	// Internal errors
	ErrorImageGenerationFailed ServiceErrorCode = 1000
	ErrorRenderingFailed       ServiceErrorCode = 1001
	ErrorInventoryFailure      ServiceErrorCode = 1002
	ErrorStreamingFailed       ServiceErrorCode = 1003

	// Errors contained within this file
	ErrorUnspecified          ServiceErrorCode = 10000
	ErrorNotHTTPError         ServiceErrorCode = 10001
	ErrorServiceErrorNotFound ServiceErrorCode = 10002
	ErrorMalformedOperationID ServiceErrorCode = 10003
)

type ServiceErrorCode int

type serviceError struct {
	code       ServiceErrorCode
	httpStatus int
	reason     string
}

type serviceErrors []serviceError

// Maps ServiceErrorcode to a reason and http code
func getServiceErrors() serviceErrors {
	return serviceErrors{
		serviceError{ErrorUnauthenticated, http.StatusUnauthorized, "Account authentication could not be verified"},
		serviceError{ErrorUnauthorized, http.StatusForbidden, "Account is unauthorized to perform this action"},
		serviceError{ErrorImageTypeDisabled, http.StatusNotFound, "Boot disks of this type are disabled"},
		serviceError{ErrorUnsupportedArchitecture, http.StatusBadRequest, "Boot disks are not available for the architecture of this host"},
		serviceError{ErrorHostNotFound, http.StatusNotFound, "Host with given id not found"},
		serviceError{ErrorMissingHostParam, http.StatusBadRequest, "One of token, host or mac must be given"},
		serviceError{ErrorTokenExpired, http.StatusUnauthorized, "Link expired, request a new boot disk"},
		serviceError{ErrorTokenInvalid, http.StatusForbidden, "Token is invalid"},
		serviceError{ErrorTokenMalformed, http.StatusBadRequest, "Token is malformed"},
		serviceError{ErrorInvalidErrorId, http.StatusBadRequest, "Invalid format for error id, it should be an integer as a string"},
		serviceError{ErrorErrorNotFound, http.StatusNotFound, "Error with given id not found"},
		serviceError{ErrorInvalidPageParam, http.StatusBadRequest, "Invalid format for page param, it should be an integer as a string"},
		serviceError{ErrorInvalidSizeParam, http.StatusBadRequest, "Invalid format for size param, it should be an integer as a string"},
		serviceError{ErrorResourceNotFound, http.StatusNotFound, "Requested resource doesn't exist"},
		serviceError{ErrorMethodNotAllowed, http.StatusMethodNotAllowed, "Requested method isn't supported for resource"},
		serviceError{ErrorNotAcceptable, http.StatusNotAcceptable, "Only 'application/json' content is supported"},

		serviceError{ErrorImageGenerationFailed, http.StatusInternalServerError, "Failed to generate boot disk"},
		serviceError{ErrorRenderingFailed, http.StatusInternalServerError, "Failed to render boot instructions"},
		serviceError{ErrorInventoryFailure, http.StatusInternalServerError, "Failed to look up host"},
		serviceError{ErrorStreamingFailed, http.StatusInternalServerError, "Failed to send boot disk"},

		serviceError{ErrorUnspecified, http.StatusInternalServerError, "Unspecified internal error "},
		serviceError{ErrorNotHTTPError, http.StatusInternalServerError, "Error is not an instance of HTTPError"},
		serviceError{ErrorServiceErrorNotFound, http.StatusInternalServerError, "Error does not exist"},
		serviceError{ErrorMalformedOperationID, http.StatusInternalServerError, "OperationID is empty or is not a string"},
	}
}

func find(code ServiceErrorCode) *serviceError {
	for _, e := range getServiceErrors() {
		if e.code == code {
			return &e
		}
	}
	return &serviceError{ErrorServiceErrorNotFound, http.StatusInternalServerError, "Error does not exist"}
}

type ObjectReference struct {
	Href string `json:"href"`
	Id   string `json:"id"`
	Kind string `json:"kind"`
}

type Error struct {
	ObjectReference
	Code        string `json:"code"`
	OperationId string `json:"operation_id"`
	Reason      string `json:"reason"`
}

type List struct {
	Kind  string `json:"kind"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Total int    `json:"total"`
}

type ErrorList struct {
	List
	Items []Error `json:"items"`
}

// Make an echo compatible error out of a service error
func HTTPError(code ServiceErrorCode) error {
	return HTTPErrorWithInternal(code, nil)
}

// echo.HTTPError has a message interface{} field, which can be used to include the ServiceErrorCode
func HTTPErrorWithInternal(code ServiceErrorCode, internalErr error) error {
	se := find(code)
	he := echo.NewHTTPError(se.httpStatus, se.code)
	if internalErr != nil {
		he.Internal = internalErr
	}
	return he
}

// Convert a ServiceErrorCode into an Error response body.
// serviceError is optional, prevents multiple find() calls
func APIError(code ServiceErrorCode, serviceError *serviceError, c echo.Context) *Error {
	se := serviceError
	if se == nil {
		se = find(code)
	}

	operationID, ok := c.Get(common.OperationIDKey).(string)
	if !ok || operationID == "" {
		se = find(ErrorMalformedOperationID)
	}

	return &Error{
		ObjectReference: ObjectReference{
			Href: fmt.Sprintf("%s/%d", ErrorHREF, se.code),
			Id:   fmt.Sprintf("%d", se.code),
			Kind: "Error",
		},
		Code:        fmt.Sprintf("%s%d", ErrorCodePrefix, se.code),
		OperationId: operationID,
		Reason:      se.reason,
	}
}

// Helper to make a paginated ErrorList
func APIErrorList(page int, pageSize int, c echo.Context) *ErrorList {
	list := &ErrorList{
		List: List{
			Kind:  "ErrorList",
			Page:  page,
			Size:  0,
			Total: len(getServiceErrors()),
		},
		Items: []Error{},
	}

	if page < 0 || pageSize < 0 {
		return list
	}

	errs := getServiceErrors()
	errs = errs[min(page*pageSize, len(errs)):min((page+1)*pageSize, len(errs))]
	for _, e := range errs {
		list.Items = append(list.Items, *APIError(e.code, &e, c))
	}
	list.Size = len(list.Items)
	return list
}

func apiErrorFromEchoError(echoError *echo.HTTPError) ServiceErrorCode {
	switch echoError.Code {
	case http.StatusNotFound:
		return ErrorResourceNotFound
	case http.StatusMethodNotAllowed:
		return ErrorMethodNotAllowed
	case http.StatusNotAcceptable:
		return ErrorNotAcceptable
	default:
		return ErrorUnspecified
	}
}

// generationError maps errors returned by the boot disk service.
func generationError(err error) error {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &he):
		return he
	case errors.Is(err, inventory.ErrHostNotFound):
		return HTTPErrorWithInternal(ErrorHostNotFound, err)
	case errors.Is(err, ipxe.ErrRender), errors.Is(err, ipxe.ErrTemplate):
		return HTTPErrorWithInternal(ErrorRenderingFailed, err)
	default:
		return HTTPErrorWithInternal(ErrorImageGenerationFailed, err)
	}
}

// tokenError gives each verification failure its own response.
func tokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return HTTPErrorWithInternal(ErrorTokenExpired, err)
	case errors.Is(err, token.ErrTokenMalformed):
		return HTTPErrorWithInternal(ErrorTokenMalformed, err)
	default:
		return HTTPErrorWithInternal(ErrorTokenInvalid, err)
	}
}

// Convert an echo error into a json error response
func (s *Server) HTTPErrorHandler(echoError error, c echo.Context) {
	doResponse := func(code ServiceErrorCode, c echo.Context) {
		if !c.Response().Committed {
			var err error
			sec := find(code)
			apiErr := APIError(code, sec, c)

			if sec.httpStatus == http.StatusInternalServerError {
				internalError, ok := echoError.(*echo.HTTPError)
				errMsg := fmt.Sprintf("Internal server error. Code: %s, OperationId: %s", apiErr.Code, apiErr.OperationId)

				if ok {
					errMsg += fmt.Sprintf(", InternalError: %v", internalError)
					captureException(c, internalError)
				}

				c.Logger().Error(errMsg)
			}

			if c.Request().Method == http.MethodHead {
				err = c.NoContent(sec.httpStatus)
			} else {
				err = c.JSON(sec.httpStatus, apiErr)
			}
			if err != nil {
				c.Logger().Errorf("Failed to return error response: %v", err)
			}
		} else {
			c.Logger().Infof("Failed to return error response, response already committed: %d", code)
		}
	}

	he, ok := echoError.(*echo.HTTPError)
	if !ok {
		c.Logger().Errorf("ErrorNotHTTPError %v", echoError)
		doResponse(ErrorNotHTTPError, c)
		return
	}

	sec, ok := he.Message.(ServiceErrorCode)
	if !ok {
		// No service code was set, so Echo threw this error
		doResponse(apiErrorFromEchoError(he), c)
		return
	}
	doResponse(sec, c)
}

// captureException reports internal errors when the sentry middleware is
// installed.
func captureException(c echo.Context, he *echo.HTTPError) {
	hub := sentryecho.GetHubFromContext(c)
	if hub == nil {
		return
	}
	err := he.Internal
	if err == nil {
		err = he
	}
	hub.CaptureException(err)
}
