package main

import (
	"flag"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/wso2/identity-contact-resolution-service/internal/system/config"
	"github.com/wso2/identity-contact-resolution-service/internal/system/constants"
	"github.com/wso2/identity-contact-resolution-service/internal/system/database/provider"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
	"github.com/wso2/identity-contact-resolution-service/internal/system/managers"
)

const schemaFile = "/dbscripts/postgres.sql"

func main() {
	icrHome := getICRHome()
	const configFile = "/repository/conf/deployment.yaml"

	envFiles, err := filepath.Glob("config/*.env")
	if err == nil && len(envFiles) > 0 {
		_ = godotenv.Load(envFiles...)
	}

	// Load the configuration file
	icrConfig, err := config.LoadConfig(icrHome, configFile)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize runtime configurations.
	if err := config.InitializeICRRuntime(icrHome, icrConfig); err != nil {
		stdlog.Fatalf("Failed to initialize runtime: %v", err)
	}

	// Initialize logger
	if err := log.Init(icrConfig.Log.LogLevel); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	logger := log.GetLogger()

	// Initialize database
	initDatabaseFromConfig(icrHome, icrConfig)

	serverAddr := fmt.Sprintf("%s:%d", icrConfig.Addr.Host, icrConfig.Addr.Port)
	mux := enableCORS(initMultiplexer())
	ln, err := net.Listen("tcp", serverAddr)
	if err != nil {
		logger.Fatal("Failed to start listener", log.Error(err))
	}

	logger.Info("WSO2 ICR started", log.String("address", serverAddr))

	server := &http.Server{Handler: mux}
	if err := server.Serve(ln); err != nil {
		logger.Fatal("Failed to serve requests", log.Error(err))
	}
}

// initDatabaseFromConfig verifies the datasource configuration and, for the
// relational backend, applies the schema script.
func initDatabaseFromConfig(icrHome string, icrConfig *config.Config) {

	logger := log.GetLogger()

	if icrConfig.DataSource.Type == constants.DataSourceTypeMongoDB {
		if icrConfig.DataSource.URI == "" {
			logger.Fatal("MongoDB URI is missing from the datasource configuration")
		}
		if _, err := provider.GetMongoDBInstance(); err != nil {
			logger.Fatal("Failed to connect to MongoDB", log.Error(err))
		}
		logger.Info("MongoDB datasource initialized successfully from configuration")
		return
	}

	ds := icrConfig.DataSource
	if ds.Hostname == "" || ds.Port == 0 || ds.Username == "" || ds.Name == "" {
		logger.Fatal("One or more PostgreSQL configuration values are missing")
	}

	dbClient, err := provider.NewDBProvider().GetDBClient()
	if err != nil {
		logger.Fatal("Failed to create database client", log.Error(err))
	}
	defer dbClient.Close()

	if err := dbClient.InitDatabase(icrHome, schemaFile); err != nil {
		logger.Fatal("Failed to initialize database schema", log.Error(err))
	}
	logger.Info("PostgreSQL database initialized successfully from configuration")
}

// initMultiplexer initializes the HTTP multiplexer and registers the services.
func initMultiplexer() *http.ServeMux {

	mux := http.NewServeMux()
	serviceManager := managers.NewServiceManager(mux)

	// Register the services.
	if err := serviceManager.RegisterServices(constants.ApiBasePath); err != nil {
		log.GetLogger().Fatal("Failed to register the services", log.Error(err))
	}

	return mux
}

func enableCORS(next http.Handler) http.Handler {
	allowedOrigins := config.GetICRRuntime().Config.Auth.CORSAllowedOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) == 0 {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range allowedOrigins {
				if allowed == origin || allowed == "*" {
					w.Header().Set("Access-Control-Allow-Origin", allowed)
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getICRHome() string {

	// Parse project directory from command line arguments.
	projectHome := ""
	projectHomeFlag := flag.String("icrHome", "", "Path to contact resolution service home directory")
	flag.Parse()

	if *projectHomeFlag != "" {
		projectHome = *projectHomeFlag
	} else {
		// If no command line argument is provided, use the current working directory.
		dir, dirErr := os.Getwd()
		if dirErr != nil {
			stdlog.Fatalf("Failed to get current working directory: %v", dirErr)
		}
		projectHome = dir
	}

	return projectHome
}
