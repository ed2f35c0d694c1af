// package models defines the data model for the activity transfer service
package models
