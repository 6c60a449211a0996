package invalid_test

this is not go
