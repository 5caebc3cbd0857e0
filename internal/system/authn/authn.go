/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package authn

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wso2/identity-contact-resolution-service/internal/system/cache"
	"github.com/wso2/identity-contact-resolution-service/internal/system/config"
	errors2 "github.com/wso2/identity-contact-resolution-service/internal/system/errors"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
)

var claimsCache = cache.NewCache(15 * time.Minute)

// ValidateAuthentication validates the Authorization: Bearer token on the
// request and returns its claims. Every attempt is recorded in the audit log.
func ValidateAuthentication(r *http.Request) (map[string]interface{}, error) {

	logger := log.GetLogger()

	claims, err := validateBearerToken(r)
	if err != nil {
		logger.Audit(log.AuditEvent{
			InitiatorType: log.InitiatorTypeUser,
			TargetID:      r.URL.Path,
			TargetType:    log.TargetTypeResource,
			ActionID:      log.ActionAuthenticationFailure,
		})
		return nil, err
	}

	logger.Audit(log.AuditEvent{
		InitiatorID:   subjectClaim(claims),
		InitiatorType: log.InitiatorTypeAdmin,
		TargetID:      r.URL.Path,
		TargetType:    log.TargetTypeResource,
		ActionID:      log.ActionAuthenticationSuccess,
	})
	return claims, nil
}

func validateBearerToken(r *http.Request) (map[string]interface{}, error) {

	token, err := extractBearerToken(r)
	if err != nil {
		return nil, err
	}

	logger := log.GetLogger()
	if strings.Count(token, ".") != 2 {
		logger.Debug("Expecting a JWT token but received an opaque token.")
		return nil, unauthorizedError()
	}

	claims, err := parseClaimsWithCache(token)
	if err != nil {
		return nil, unauthorizedError()
	}

	// Expiry is checked on every request, even for cached claims.
	if !validateClaims(claims) {
		return nil, unauthorizedError()
	}
	return claims, nil
}

func subjectClaim(claims map[string]interface{}) string {

	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}

func parseClaimsWithCache(token string) (map[string]interface{}, error) {

	if cached, found := claimsCache.Get(token); found {
		if claims, ok := cached.(map[string]interface{}); ok {
			return claims, nil
		}
	}

	claims, err := ParseJWTClaims(token)
	if err != nil {
		return nil, err
	}
	claimsCache.Set(token, claims)
	return claims, nil
}

func extractBearerToken(r *http.Request) (string, error) {

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", unauthorizedError()
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", unauthorizedError()
	}
	return parts[1], nil
}

// ParseJWTClaims parses claims from a JWT without verifying the signature
func ParseJWTClaims(tokenString string) (map[string]interface{}, error) {

	logger := log.GetLogger()
	claims := jwt.MapClaims{}
	_, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims)
	if err != nil {
		errMsg := "Error occurred when parsing claims from JWT token."
		logger.Debug(errMsg, log.Error(err))
		serverError := errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.PARSING_ERROR.Code,
			Message:     errors2.PARSING_ERROR.Message,
			Description: errMsg,
		}, err)
		return nil, serverError
	}
	return claims, nil
}

// validateClaims ensures the token carries the expected audience and has not expired.
func validateClaims(claims map[string]interface{}) bool {

	logger := log.GetLogger()
	expectedAudience := config.GetICRRuntime().Config.Auth.AdminAudience
	if expectedAudience != "" {
		audRaw, ok := claims["aud"]
		if !ok || !audienceMatches(audRaw, expectedAudience) {
			logger.Debug("Token does not have the expected audience claim.")
			return false
		}
	}

	expRaw, ok := claims["exp"]
	if !ok {
		logger.Debug("Token does not have an expiration time.")
		return false
	}
	expFloat, ok := expRaw.(float64)
	if !ok {
		logger.Debug("Token does not have a valid expiration time.", log.Any("exp", expRaw))
		return false
	}
	expUnix := int64(expFloat)
	if expUnix < time.Now().Unix() {
		logger.Debug("Token has expired.", log.String("exp", time.Unix(expUnix, 0).String()))
		return false
	}
	return true
}

// audienceMatches handles both string and array forms of the aud claim.
func audienceMatches(audRaw interface{}, expected string) bool {

	switch aud := audRaw.(type) {
	case string:
		return aud == expected
	case []interface{}:
		for _, a := range aud {
			if s, ok := a.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}

func unauthorizedError() error {
	return errors2.NewClientError(errors2.ErrorMessage{
		Code:        errors2.UNAUTHORIZED.Code,
		Message:     errors2.UNAUTHORIZED.Message,
		Description: errors2.UNAUTHORIZED.Description,
	}, http.StatusUnauthorized)
}
