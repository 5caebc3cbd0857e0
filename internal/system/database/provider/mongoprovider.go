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

package provider

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wso2/identity-contact-resolution-service/internal/system/config"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
)

// MongoDB holds the client and the selected database.
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

var (
	mongoInstance *MongoDB
	mongoInitErr  error
	mongoOnce     sync.Once
)

// GetMongoDBInstance initializes (once) and returns the global MongoDB connection.
func GetMongoDBInstance() (*MongoDB, error) {

	mongoOnce.Do(func() {
		runtimeConfig := config.GetICRRuntime().Config

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		clientOptions := options.Client().ApplyURI(runtimeConfig.DataSource.URI)
		mongoClient, err := mongo.Connect(ctx, clientOptions)
		if err != nil {
			mongoInitErr = err
			return
		}

		// Ping to ensure the connection is live.
		if err := mongoClient.Ping(ctx, nil); err != nil {
			mongoInitErr = err
			return
		}

		log.GetLogger().Info("Connected to MongoDB")
		mongoInstance = &MongoDB{
			Client:   mongoClient,
			Database: mongoClient.Database(runtimeConfig.DataSource.Name),
		}
	})

	if mongoInitErr != nil {
		return nil, mongoInitErr
	}
	return mongoInstance, nil
}
